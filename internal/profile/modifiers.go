package profile

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

func init() {
	gjson.AddModifier("list", func(jsonStr, _ string) string {
		return joinArray(jsonStr, ", ")
	})
	gjson.AddModifier("fullname", func(jsonStr, _ string) string {
		res := gjson.Parse(jsonStr)
		name := joinNonEmpty(" ", res.Get("first_name").String(), res.Get("last_name").String())
		out, _ := json.Marshal(name)
		return string(out)
	})
}

// joinArray joins the non-empty scalar members of a JSON array into one
// JSON string. Non-array input passes through unchanged.
func joinArray(jsonStr, sep string) string {
	res := gjson.Parse(jsonStr)
	if !res.IsArray() {
		return jsonStr
	}
	var parts []string
	res.ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" && !v.IsObject() && !v.IsArray() {
			parts = append(parts, s)
		}
		return true
	})
	out, _ := json.Marshal(strings.Join(parts, sep))
	return string(out)
}
