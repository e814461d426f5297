package semantic

import "testing"

func TestToPayloadKinds(t *testing.T) {
	payload := toPayload(map[string]any{
		"name":         "GitHub",
		"rank":         3,
		"weight":       0.42,
		"active":       true,
		"capabilities": []string{"repository-management", "issues"},
	})

	if payload["name"].GetStringValue() != "GitHub" {
		t.Fatal("string payload mangled")
	}
	if payload["rank"].GetIntegerValue() != 3 {
		t.Fatal("int payload mangled")
	}
	if payload["weight"].GetDoubleValue() != 0.42 {
		t.Fatal("float payload mangled")
	}
	if !payload["active"].GetBoolValue() {
		t.Fatal("bool payload mangled")
	}
	caps := payload["capabilities"].GetListValue().GetValues()
	if len(caps) != 2 || caps[0].GetStringValue() != "repository-management" {
		t.Fatalf("list payload mangled: %v", caps)
	}
}

func TestToPayloadFallbackStringizes(t *testing.T) {
	payload := toPayload(map[string]any{"odd": struct{ X int }{7}})
	if payload["odd"].GetStringValue() == "" {
		t.Fatal("unknown types must stringize, not drop")
	}
}

func TestFieldMatch(t *testing.T) {
	cond := fieldMatch("type", "ai")
	field := cond.GetField()
	if field.GetKey() != "type" {
		t.Fatalf("key = %s", field.GetKey())
	}
	if field.GetMatch().GetKeyword() != "ai" {
		t.Fatalf("keyword = %s", field.GetMatch().GetKeyword())
	}
}
