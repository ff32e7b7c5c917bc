package validation

import "testing"

type stepInput struct {
	Name         string `json:"name" validate:"required"`
	ApproverRole string `json:"approverRole" validate:"required"`
}

type workflowInput struct {
	Name       string      `json:"name" validate:"required"`
	EntityType string      `json:"entityType" validate:"oneof=Request Order RFQ"`
	Period     string      `json:"period" validate:"omitempty,period"`
	Rate       *float64    `json:"rate" validate:"omitempty,gte=0,lte=1"`
	Steps      []stepInput `json:"steps" validate:"dive"`
}

func TestStruct(t *testing.T) {
	bad := 1.5
	v := Struct(workflowInput{
		EntityType: "Invoice",
		Period:     "2024-13",
		Rate:       &bad,
		Steps:      []stepInput{{Name: "Manager"}},
	})
	want := map[string]string{
		"name":                  "required",
		"entityType":            "must_be_one_of:Request Order RFQ",
		"period":                "invalid_period",
		"rate":                  "out_of_range",
		"steps[0].approverRole": "required",
	}
	for field, msg := range want {
		if v[field] != msg {
			t.Errorf("%s = %q, want %q (all: %v)", field, v[field], msg, v)
		}
	}
}

func TestStructValid(t *testing.T) {
	v := Struct(workflowInput{Name: "rfq-default", EntityType: "RFQ", Period: "2024-05"})
	if !v.Empty() {
		t.Fatalf("expected no violations, got %v", v)
	}
}

func TestValidPeriod(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2024-01", true},
		{"2024-12", true},
		{"2024-00", false},
		{"24-01", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidPeriod(tt.in); got != tt.want {
			t.Errorf("ValidPeriod(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
