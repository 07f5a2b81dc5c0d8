package core

import "encoding/json"

// UnknownKeys decodes the JSON object in data and returns every key not in
// known, or nil when there is none.
func UnknownKeys(data []byte, known ...string) (map[string]any, error) {
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// MarshalWithExtra encodes v and adds the extra keys to the resulting object.
// Keys v already writes win over extra.
func MarshalWithExtra(v any, extra map[string]any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, known := all[k]; !known {
			all[k] = val
		}
	}
	return json.Marshal(all)
}
