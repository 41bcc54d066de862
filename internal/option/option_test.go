package option

import (
	"encoding/json"
	"testing"
)

type editPayload struct {
	Content Option[string] `json:"content,omitzero"`
	Flags   Option[int]    `json:"flags,omitzero"`
}

func TestOptionEncoding(t *testing.T) {
	tests := []struct {
		name    string
		payload editPayload
		want    string
	}{
		{"absent", editPayload{}, `{}`},
		{"null", editPayload{Content: Null[string]()}, `{"content":null}`},
		{"value", editPayload{Content: Some("hello"), Flags: Some(4)}, `{"content":"hello","flags":4}`},
		{"empty string is a value", editPayload{Content: Some("")}, `{"content":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.payload)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOptionDecoding(t *testing.T) {
	var p editPayload
	if err := json.Unmarshal([]byte(`{"content":null,"flags":2}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !p.Content.IsNull() || p.Content.IsSet() || p.Content.IsZero() {
		t.Errorf("content state wrong: null=%v set=%v zero=%v", p.Content.IsNull(), p.Content.IsSet(), p.Content.IsZero())
	}
	if v, ok := p.Flags.Get(); !ok || v != 2 {
		t.Errorf("flags = %v, %v", v, ok)
	}

	var q editPayload
	if err := json.Unmarshal([]byte(`{}`), &q); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !q.Content.IsZero() {
		t.Error("missing field should stay absent")
	}
	if got := q.Flags.OrElse(9); got != 9 {
		t.Errorf("OrElse = %d", got)
	}
}

func TestOptionNone(t *testing.T) {
	o := None[string]()
	if !o.IsZero() || o.IsNull() || o.IsSet() {
		t.Error("None should be absent")
	}
	if _, ok := o.Get(); ok {
		t.Error("None should carry no value")
	}
}
