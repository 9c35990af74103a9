package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
)

// maxCallbackBytes bounds a gateway callback body
const maxCallbackBytes = 64 << 10

// readParams collects callback fields from the query string (GET), a JSON
// body or a form body. JSON scalars are stringified from their literal text
// so the signature is computed over exactly what the gateway sent.
func readParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	if r.Method == http.MethodGet {
		return firstValues(r.URL.Query()), nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		return firstValues(r.PostForm), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxCallbackBytes); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		return firstValues(r.PostForm), nil
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return firstValues(r.URL.Query()), nil
		}
		return decodeJSONParams(body)
	}
}

func decodeJSONParams(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json body: %w", err)
	}

	params := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			params[k] = val
		case json.Number:
			params[k] = val.String()
		case bool:
			params[k] = strconv.FormatBool(val)
		default:
			nested, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("encode field %s: %w", k, err)
			}
			params[k] = string(nested)
		}
	}
	return params, nil
}

func firstValues(values map[string][]string) map[string]string {
	params := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}
