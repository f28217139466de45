// Package staticfeed is the "third_parties[].data_src" FX feed config §6
// names: a JSON file of label -> rate pairs read once at startup, the
// currency-port equivalent of rpcport/mockfile's canned-reply fixture.
// A real deployment would swap this for a networked feed without
// touching currency.Port callers.
package staticfeed

import (
	"context"
	"encoding/json"
	"os"

	"github.com/shopspring/decimal"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

type Feed struct {
	rates map[string]decimal.Decimal
}

func Load(path string) (*Feed, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, "read fx feed fixture", err)
	}
	raw := map[string]string{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, apperr.Wrap(apperr.InvalidJsonFormat, "parse fx feed fixture", err)
	}
	rates := make(map[string]decimal.Decimal, len(raw))
	for label, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, "parse fx rate for "+label, err)
		}
		rates[label] = d
	}
	return &Feed{rates: rates}, nil
}

func (f *Feed) FetchRates(_ context.Context, _ string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(f.rates))
	for k, v := range f.rates {
		out[k] = v
	}
	return out, nil
}
