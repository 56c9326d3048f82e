package csvio

import (
	"strings"
	"testing"
)

func TestParse_SimpleFile(t *testing.T) {
	data := []byte("Name,Type,Priority\nAcme Corp,customer,A\nGlobex Inc,vendor,B\n")

	f, err := Parse(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if f.HeaderLine != 1 {
		t.Errorf("HeaderLine = %d, want 1", f.HeaderLine)
	}
	if len(f.Headers) != 3 {
		t.Fatalf("got %d headers, want 3", len(f.Headers))
	}
	if f.Headers[1].Cleaned != "Type" {
		t.Errorf("Headers[1].Cleaned = %q, want %q", f.Headers[1].Cleaned, "Type")
	}
	if len(f.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(f.Records))
	}
	if f.Records[0].Line != 2 {
		t.Errorf("Records[0].Line = %d, want 2", f.Records[0].Line)
	}
	if f.Records[1].Cell(0) != "Globex Inc" {
		t.Errorf("Records[1].Cell(0) = %q, want %q", f.Records[1].Cell(0), "Globex Inc")
	}
}

func TestParse_HeaderAfterBannerRows(t *testing.T) {
	data := []byte(strings.Join([]string{
		"Please fill in every column before uploading this file to the system,,",
		",,",
		"Name,Type,Priority",
		"Acme Corp,customer,A",
	}, "\n"))

	f, err := Parse(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if f.HeaderLine != 3 {
		t.Errorf("HeaderLine = %d, want 3", f.HeaderLine)
	}
	if len(f.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(f.Records))
	}
	if f.Records[0].Line != 4 {
		t.Errorf("Records[0].Line = %d, want 4", f.Records[0].Line)
	}
}

func TestParse_SkipsEmptyRows(t *testing.T) {
	data := []byte("Name\nAcme\n,\n ,\nGlobex\n")

	f, err := Parse(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(f.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(f.Records))
	}
	if f.Records[1].Index != 1 {
		t.Errorf("Records[1].Index = %d, want 1", f.Records[1].Index)
	}
	if f.Records[1].Line != 5 {
		t.Errorf("Records[1].Line = %d, want 5", f.Records[1].Line)
	}
}

func TestParse_StripsBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Name\nAcme\n")...)

	f, err := Parse(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f.Headers[0].Cleaned != "Name" {
		t.Errorf("Headers[0].Cleaned = %q, want %q", f.Headers[0].Cleaned, "Name")
	}
}

func TestParse_CollectsSamples(t *testing.T) {
	data := []byte("Name,Priority\nAcme,A\nGlobex,\nInitech,B\nUmbrella,C\nStark,D\nWayne,A\n")

	opts := DefaultOptions()
	opts.SampleValues = 3
	f, err := Parse(data, opts)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	samples := f.Headers[1].Samples
	want := []string{"A", "B", "C"} // empty cell skipped
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d: %v", len(samples), len(want), samples)
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Samples[%d] = %q, want %q", i, samples[i], want[i])
		}
	}
}

func TestParse_FatalErrors(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxBytes = 16

	tests := []struct {
		name string
		data []byte
		opts Options
	}{
		{"empty file", nil, DefaultOptions()},
		{"only blank rows", []byte(",,\n,,\n"), DefaultOptions()},
		{"oversized", []byte("Name,Type,Priority\nAcme,customer,A\n"), opts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, tt.opts)
			if err == nil {
				t.Fatal("Parse() expected error")
			}
			if _, ok := err.(*ParseError); !ok {
				t.Errorf("error type = %T, want *ParseError", err)
			}
		})
	}
}

func TestParse_RaggedRows(t *testing.T) {
	data := []byte("Name,Type,Priority\nAcme,customer\n")

	f, err := Parse(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := f.Records[0].Cell(2); got != "" {
		t.Errorf("Cell(2) = %q, want empty for short row", got)
	}
}

func TestDetectHeaderRow_TiesGoEarliest(t *testing.T) {
	rows := [][]string{
		{"Name", "Type"},
		{"Acme", "customer"},
	}
	idx, ok := DetectHeaderRow(rows, 10)
	if !ok || idx != 0 {
		t.Errorf("DetectHeaderRow = (%d, %v), want (0, true)", idx, ok)
	}
}

func TestDetectHeaderRow_PrefersFullestRow(t *testing.T) {
	rows := [][]string{
		{"Quarterly export", "", ""},
		{"Name", "Type", "Priority"},
		{"Acme", "customer", "A"},
	}
	idx, ok := DetectHeaderRow(rows, 10)
	if !ok || idx != 1 {
		t.Errorf("DetectHeaderRow = (%d, %v), want (1, true)", idx, ok)
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`  plain  `, "plain"},
		{`="00123"`, "00123"},
		{`=SUM(A1)`, "SUM(A1)"},
		{`"quoted"`, "quoted"},
		{`'single'`, "single"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanCell(tt.in); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Account   Name ", "Account Name"},
		{"PRIORITY-FOCUS (A-D) A-highest", "PRIORITY-FOCUS (A-D) A-highest"},
		{"Name\tand\ttabs", "Name and tabs"},
	}
	for _, tt := range tests {
		if got := NormalizeHeader(tt.in); got != tt.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse_SanitizesInvalidUTF8(t *testing.T) {
	data := []byte("Name\nAc\xffme\n")

	f, err := Parse(data, DefaultOptions())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := f.Records[0].Cell(0)
	if !strings.Contains(got, "�") {
		t.Errorf("Cell(0) = %q, want replacement rune for invalid byte", got)
	}
}
