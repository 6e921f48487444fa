package reputation

import "encoding/json"

func encodeRecord(r Record) []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return data
}

func decodeRecord(data []byte, out *Record) bool {
	return json.Unmarshal(data, out) == nil
}
