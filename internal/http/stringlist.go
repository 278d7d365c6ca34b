package http

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StringList decodes from either a JSON string or an array of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("input must be a string or a list of strings")
	}
	*l = list
	return nil
}
