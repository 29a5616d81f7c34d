package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"expensewise/internal/aggregate"
	"expensewise/internal/core"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"id": "123", "name": "test", "amount": 42.5}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}

	if id := parser.Get("id"); id != "123" {
		t.Errorf("Get('id') = %q, want '123'", id)
	}

	if name := parser.Get("name"); name != "test" {
		t.Errorf("Get('name') = %q, want 'test'", name)
	}

	if amount := parser.Get("amount"); amount != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", amount)
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "id=456&name=form+test&value=100"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}

	if id := parser.Get("id"); id != "456" {
		t.Errorf("Get('id') = %q, want '456'", id)
	}

	if name := parser.Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	err := parser.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
}

func TestRequestBodyParser_Has(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/profile", strings.NewReader("fullName=&role=Owner"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !parser.Has("fullName") {
		t.Error("Has('fullName') = false for an empty but present field")
	}
	if parser.Has("phoneNumber") {
		t.Error("Has('phoneNumber') = true for a missing field")
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(`{"amount":`))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err == nil {
		t.Fatal("Parse() expected error for truncated JSON")
	}
	if parser.IsJSON() {
		t.Error("IsJSON() should be false after a failed parse")
	}
}

func TestRequestBodyParser_ExpenseInput(t *testing.T) {
	body := `{"amount": 100, "category": "Other", "otherCategory": "  Utilities ", "date": "2024-01-05"}`
	req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	in := parser.ExpenseInput()
	want := core.ExpenseInput{Amount: "100", Category: "Other", OtherCategory: "Utilities", Date: "2024-01-05"}
	if in != want {
		t.Errorf("ExpenseInput() = %+v, want %+v", in, want)
	}
}

func TestRequestBodyParser_ProfileUpdate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantName  *string
		wantRole  *core.Role
		wantPhone *string
	}{
		{
			name:     "only name",
			body:     "fullName=Asha+Rao",
			wantName: strPtr("Asha Rao"),
		},
		{
			name:      "role and phone",
			body:      "role=Tenant&phoneNumber=9876543210",
			wantRole:  rolePtr(core.RoleTenant),
			wantPhone: strPtr("9876543210"),
		},
		{
			name: "nothing",
			body: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/profile", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			parser := NewRequestBodyParser(req)
			if err := parser.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			u := parser.ProfileUpdate()
			if !equalStr(u.FullName, tt.wantName) {
				t.Errorf("FullName = %v, want %v", u.FullName, tt.wantName)
			}
			if (u.Role == nil) != (tt.wantRole == nil) || (u.Role != nil && *u.Role != *tt.wantRole) {
				t.Errorf("Role = %v, want %v", u.Role, tt.wantRole)
			}
			if !equalStr(u.PhoneNumber, tt.wantPhone) {
				t.Errorf("PhoneNumber = %v, want %v", u.PhoneNumber, tt.wantPhone)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	q := url.Values{}
	q.Set("mode", "WEEK")
	q.Set("start", " 2024-01-01 ")
	q.Set("end", "2024-01-07")

	f := parseFilter(q)
	if f.Mode != aggregate.ModeWeek {
		t.Errorf("Mode = %q, want %q", f.Mode, aggregate.ModeWeek)
	}
	if f.Start != "2024-01-01" || f.End != "2024-01-07" {
		t.Errorf("Start/End = %q/%q", f.Start, f.End)
	}

	if got := parseFilter(url.Values{}).Mode; got != aggregate.ModeMonth {
		t.Errorf("default Mode = %q, want %q", got, aggregate.ModeMonth)
	}
}

func TestPieGradient(t *testing.T) {
	if got := string(pieGradient(nil)); got != "conic-gradient(#E5E7EB 0% 100%)" {
		t.Errorf("empty chart = %q", got)
	}

	points := []aggregate.ChartPoint{
		{Name: "Food", Percentage: 66.666, Color: "#4F46E5"},
		{Name: "Travel", Percentage: 33.333, Color: "#A78BFA"},
	}
	want := "conic-gradient(#4F46E5 0.00% 66.67%, #A78BFA 66.67% 100.00%)"
	if got := string(pieGradient(points)); got != want {
		t.Errorf("pieGradient = %q, want %q", got, want)
	}
}

func strPtr(s string) *string { return &s }

func rolePtr(r core.Role) *core.Role { return &r }

func equalStr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
