package migrate

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"slices"

	"github.com/antonholmquist/jason"
	"github.com/tphakala/syncmigrate/internal/errors"
)

const (
	syncIDField   = "syncID"
	enginesField  = "engines"
	syncIDEntropy = 9 // 12 base64 characters
)

// SyncIDGenerator produces fresh sync ids from an entropy source.
type SyncIDGenerator struct {
	random io.Reader
}

// NewSyncIDGenerator returns a generator reading from random.
func NewSyncIDGenerator(random io.Reader) *SyncIDGenerator {
	return &SyncIDGenerator{random: random}
}

// Next returns a new 12 character URL-safe sync id.
func (g *SyncIDGenerator) Next() (string, error) {
	buf := make([]byte, syncIDEntropy)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// RewriteSyncIDs replaces the top-level syncID of a meta/global payload and
// the syncID of every engine object listed under "engines". Other members keep
// their values; numbers keep their original digits. It returns the new
// payload and the engine names touched.
func RewriteSyncIDs(payload string, ids *SyncIDGenerator) (string, []string, error) {
	obj, err := jason.NewObjectFromBytes([]byte(payload))
	if err != nil {
		return payload, nil, payloadError(err, "parse_payload")
	}

	doc := members(obj)
	if doc[syncIDField], err = nextSyncID(ids); err != nil {
		return payload, nil, err
	}

	var engines []string
	if engineObj, err := obj.GetObject(enginesField); err == nil {
		engineDoc := members(engineObj)
		objects := make(map[string]*jason.Object)
		for name, value := range engineObj.Map() {
			if engine, err := value.Object(); err == nil {
				objects[name] = engine
				engines = append(engines, name)
			}
		}
		slices.Sort(engines)

		for _, name := range engines {
			engine := members(objects[name])
			if engine[syncIDField], err = nextSyncID(ids); err != nil {
				return payload, nil, err
			}
			engineDoc[name] = engine
		}
		doc[enginesField] = engineDoc
	}

	out, err := marshalRaw(doc)
	if err != nil {
		return payload, nil, payloadError(err, "encode_payload")
	}
	return string(out), engines, nil
}

// members copies the members of obj into a map that encodes back to the
// same JSON values.
func members(obj *jason.Object) map[string]any {
	src := obj.Map()
	out := make(map[string]any, len(src))
	for name, value := range src {
		out[name] = value.Interface()
	}
	return out
}

func nextSyncID(ids *SyncIDGenerator) (string, error) {
	id, err := ids.Next()
	if err != nil {
		return "", errors.New(err).
			Component("migrate").
			Category(errors.CategoryProcessing).
			Context("operation", "generate_sync_id").
			Build()
	}
	return id, nil
}

// marshalRaw encodes v without HTML escaping so untouched string members
// keep their original characters.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func payloadError(err error, operation string) error {
	return errors.New(err).
		Component("migrate").
		Category(errors.CategoryValidation).
		Context("operation", operation).
		Build()
}
