package docs

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestSwagger_CreateResponsesAreEnveloped(t *testing.T) {
	doc := SwaggerInfo.ReadDoc()
	if !gjson.Valid(doc) {
		t.Fatalf("swagger doc is not valid JSON")
	}
	cases := []struct {
		path, ref, field string
	}{
		{"paths./demands.post.responses.201.schema.$ref", "#/definitions/handlers.CreateDemandResponse", "demand"},
		{"paths./applications.post.responses.201.schema.$ref", "#/definitions/handlers.CreateApplicationResponse", "supply"},
	}
	for _, tc := range cases {
		if got := gjson.Get(doc, tc.path).String(); got != tc.ref {
			t.Fatalf("%s = %q, want %q", tc.path, got, tc.ref)
		}
		def := "definitions." + gjson.Escape(tc.ref[len("#/definitions/"):]) + ".properties." + tc.field
		if !gjson.Get(doc, def).Exists() {
			t.Fatalf("%s missing", def)
		}
	}
}
