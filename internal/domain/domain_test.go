package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParameters_JSONRoundTrip(t *testing.T) {
	raw := `{"id":"abc","limit":25,"verbose":true,"filter":{"a":[1,2]}}`
	var p Parameters
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p["id"].Type != ParamString || p["id"].String != "abc" {
		t.Fatalf("id: %+v", p["id"])
	}
	if p["limit"].Type != ParamNumber || p["limit"].Number != 25 {
		t.Fatalf("limit: %+v", p["limit"])
	}
	if p["verbose"].Type != ParamBoolean || !p["verbose"].Bool {
		t.Fatalf("verbose: %+v", p["verbose"])
	}
	if p["filter"].Type != ParamJSON {
		t.Fatalf("filter: %+v", p["filter"])
	}

	decoded, err := DecodeParams(p.Encode())
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	if decoded["id"] != "abc" || decoded["limit"] != float64(25) || decoded["verbose"] != true {
		t.Fatalf("decoded mismatch: %#v", decoded)
	}
}

func TestValue_RejectsNull(t *testing.T) {
	var p Parameters
	if err := json.Unmarshal([]byte(`{"x":null}`), &p); err == nil {
		t.Fatalf("expected error for null value")
	}
}

func TestDecodeParams_Malformed(t *testing.T) {
	m, err := DecodeParams("{not json")
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if m == nil || len(m) != 0 {
		t.Fatalf("want empty map on error, got %#v", m)
	}
	if m, err := DecodeParams(""); err != nil || len(m) != 0 {
		t.Fatalf("empty input: %#v %v", m, err)
	}
}

func TestValidateParams(t *testing.T) {
	api := APIDefinition{
		Name:   "get-user",
		Method: "GET",
		URI:    "/users/{id}",
		Params: []ParamDef{
			{Name: "id", Type: ParamString, Required: true},
			{Name: "limit", Type: ParamNumber},
			{Name: "body", Type: ParamJSON},
		},
	}

	cases := []struct {
		name string
		p    Parameters
		ok   bool
	}{
		{"all good", Parameters{"id": StringValue("7"), "limit": NumberValue(3)}, true},
		{"json accepts scalar", Parameters{"id": StringValue("7"), "body": NumberValue(1)}, true},
		{"missing required", Parameters{"limit": NumberValue(3)}, false},
		{"unknown", Parameters{"id": StringValue("7"), "nope": BoolValue(true)}, false},
		{"wrong type", Parameters{"id": NumberValue(7)}, false},
	}
	for _, c := range cases {
		err := api.ValidateParams(c.p)
		if c.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", c.name, err)
		}
		if !c.ok && !IsValidation(err) {
			t.Fatalf("%s: want ValidationError, got %v", c.name, err)
		}
	}
}

func TestValidateParams_PlaceholderAlwaysRequired(t *testing.T) {
	api := APIDefinition{
		Name:   "get-item",
		Method: "GET",
		URI:    "/items/{id}",
		Params: []ParamDef{{Name: "id", Type: ParamString}},
	}
	if err := api.Validate(); err != nil {
		t.Fatalf("definition should be accepted: %v", err)
	}
	err := api.ValidateParams(Parameters{})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "params.id" {
		t.Fatalf("want ValidationError on params.id, got %v", err)
	}
	if err := api.ValidateParams(Parameters{"id": StringValue("1")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSyntheticTest_Validate(t *testing.T) {
	base := SyntheticTest{
		Name:             "login",
		APIID:            1,
		Target:           Target{Kind: TargetGroup, ID: 2},
		IntervalSeconds:  10,
		AlertThresholdMs: 0,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid test rejected: %v", err)
	}

	short := base
	short.IntervalSeconds = 9
	if err := short.Validate(); !IsValidation(err) {
		t.Fatalf("interval 9 should be rejected, got %v", err)
	}

	neg := base
	neg.AlertThresholdMs = -1
	if err := neg.Validate(); !IsValidation(err) {
		t.Fatalf("negative threshold should be rejected, got %v", err)
	}

	kind := base
	kind.Target.Kind = "cluster"
	if err := kind.Validate(); !IsValidation(err) {
		t.Fatalf("bad target kind should be rejected, got %v", err)
	}
}

func TestAPIDefinition_Validate(t *testing.T) {
	a := APIDefinition{Name: "x", Method: "post", URI: "/items/{id}", Params: []ParamDef{{Name: "id", Type: ParamNumber}}}
	if err := a.Validate(); err != nil {
		t.Fatalf("valid api rejected: %v", err)
	}
	if a.Method != "POST" {
		t.Fatalf("method not normalized: %q", a.Method)
	}

	noSlash := APIDefinition{Name: "x", Method: "GET", URI: "items"}
	if err := noSlash.Validate(); !IsValidation(err) {
		t.Fatalf("uri without slash should be rejected, got %v", err)
	}

	undeclared := APIDefinition{Name: "x", Method: "GET", URI: "/items/{id}"}
	if err := undeclared.Validate(); !IsValidation(err) {
		t.Fatalf("undeclared placeholder should be rejected, got %v", err)
	}
}

func TestNodeGroup_ValidateDedupes(t *testing.T) {
	g := NodeGroup{Name: "edge", NodeIDs: []int64{3, 1, 3, 2, 1}}
	if err := g.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := []int64{3, 1, 2}
	if len(g.NodeIDs) != len(want) {
		t.Fatalf("got %v want %v", g.NodeIDs, want)
	}
	for i := range want {
		if g.NodeIDs[i] != want[i] {
			t.Fatalf("got %v want %v", g.NodeIDs, want)
		}
	}
}

func TestNotFoundError_Is(t *testing.T) {
	err := error(&NotFoundError{Kind: "test", ID: 4})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("NotFoundError should match ErrNotFound")
	}
	if err.Error() != "test 4 not found" {
		t.Fatalf("message: %q", err.Error())
	}
}

func TestPathParams(t *testing.T) {
	got := PathParams("/a/{x}/b/{y}")
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("got %v", got)
	}
	if len(PathParams("/plain")) != 0 {
		t.Fatalf("expected none")
	}
}
