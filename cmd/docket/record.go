package main

import (
	"encoding/json"

	"github.com/zoobzio/docket"
)

// record is a schemaless document. Its JSON form is the document itself.
type record struct {
	docket.Document
	body map[string]any
}

func (r record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.body)+1)
	for k, v := range r.body {
		out[k] = v
	}
	if r.ID != "" {
		out["id"] = r.ID
	}
	return json.Marshal(out)
}

func (r *record) UnmarshalJSON(data []byte) error {
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	r.body = body
	r.ID, _ = body["id"].(string)
	return nil
}
