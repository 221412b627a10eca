package cost

import (
	"encoding/json"

	"github.com/nexusmedia/contentops/internal/store"
)

func unmarshalInto(doc store.Document, v any) error {
	return json.Unmarshal(doc, v)
}
