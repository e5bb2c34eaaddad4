package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/offthaspin/renting/internal/models"
)

// decodeBody reads a JSON object with numbers preserved as json.Number so
// amounts survive without float rounding.
func decodeBody(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(r, 1<<16))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// buildIncomingPayment flattens any of the provider's payload shapes — flat
// C2B fields, harmonized lower-case fields, or the nested
// CallbackMetadata.Item list — into one normalized event.
func buildIncomingPayment(raw map[string]any) models.IncomingPayment {
	flat := flatten(raw)

	return models.IncomingPayment{
		TransactionID:     pickFlat(flat, "transid", "transactionid", "transaction_id", "mpesareceiptnumber"),
		Amount:            pickAmount(flat, "transamount", "amount"),
		MSISDN:            pickFlat(flat, "msisdn", "phonenumber", "phone_number"),
		AccountReference:  pickFlat(flat, "billrefnumber", "accountreference", "billref", "account_reference"),
		BusinessShortCode: pickFlat(flat, "businessshortcode", "shortcode", "business_short_code"),
	}
}

// flatten lower-cases keys, descends into the Body/stkCallback envelope, and
// merges CallbackMetadata name/value items into the top level.
func flatten(raw map[string]any) map[string]any {
	flat := make(map[string]any, len(raw))
	for k, v := range raw {
		flat[strings.ToLower(k)] = v
	}

	if body, ok := flat["body"].(map[string]any); ok {
		for k, v := range body {
			flat[strings.ToLower(k)] = v
		}
	}
	if cb, ok := flat["stkcallback"].(map[string]any); ok {
		for k, v := range cb {
			flat[strings.ToLower(k)] = v
		}
	}
	if meta, ok := flat["callbackmetadata"].(map[string]any); ok {
		items, _ := meta["Item"].([]any)
		if items == nil {
			items, _ = meta["item"].([]any)
		}
		for _, it := range items {
			item, ok := it.(map[string]any)
			if !ok {
				continue
			}
			name, _ := item["Name"].(string)
			if name == "" {
				name, _ = item["name"].(string)
			}
			if name == "" {
				continue
			}
			value := item["Value"]
			if value == nil {
				value = item["value"]
			}
			flat[strings.ToLower(name)] = value
		}
	}
	return flat
}

// pick reads string values from an unflattened payload by lower-cased key.
func pick(raw map[string]any, keys ...string) string {
	return pickFlat(flatten(raw), keys...)
}

func pickFlat(flat map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := flat[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case json.Number:
			return val.String()
		case float64:
			return strings.TrimSuffix(fmt.Sprintf("%f", val), ".000000")
		}
	}
	return ""
}

func pickAmount(flat map[string]any, keys ...string) decimal.Decimal {
	for _, key := range keys {
		v, ok := flat[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if d, err := decimal.NewFromString(strings.TrimSpace(val)); err == nil {
				return d
			}
		case json.Number:
			if d, err := decimal.NewFromString(val.String()); err == nil {
				return d
			}
		case float64:
			return decimal.NewFromFloat(val)
		}
	}
	return decimal.Zero
}
