package paprika

import "github.com/tidwall/gjson"

// ItemCount returns the number of entries in a sync payload's result array,
// or -1 when the payload has no such array.
func ItemCount(payload []byte) int {
	result := gjson.GetBytes(payload, "result")
	if !result.IsArray() {
		return -1
	}
	return int(gjson.GetBytes(payload, "result.#").Int())
}

// Resources lists the resources turmeric keeps in sync, in display order.
func Resources() []string {
	return []string{Groceries, Meals}
}
