package provider

import (
	"sort"
	"strings"
)

// DataPlan is one purchasable bundle.
type DataPlan struct {
	Slug        string `json:"slug"`
	Network     string `json:"network"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
}

// Catalog maps stable internal identifiers to provider codes. It is static
// configuration and never built from user input.
type Catalog struct {
	Networks   map[string]string
	DataPlans  map[string]DataPlan
	Discos     map[string]string
	MeterTypes map[string]string
}

// DefaultCatalog is the mapping table for the VTU provider. Prices are in
// minor units.
func DefaultCatalog() Catalog {
	return Catalog{
		Networks: map[string]string{
			"mtn":     "1",
			"glo":     "2",
			"9mobile": "3",
			"airtel":  "4",
		},
		DataPlans: indexPlans([]DataPlan{
			{Slug: "mtn-500mb-30d", Network: "mtn", Code: "212", Description: "MTN SME 500MB 30 days", Price: 15_000},
			{Slug: "mtn-1gb-30d", Network: "mtn", Code: "7", Description: "MTN SME 1GB 30 days", Price: 28_000},
			{Slug: "mtn-2gb-30d", Network: "mtn", Code: "8", Description: "MTN SME 2GB 30 days", Price: 56_000},
			{Slug: "mtn-5gb-30d", Network: "mtn", Code: "11", Description: "MTN SME 5GB 30 days", Price: 140_000},
			{Slug: "glo-1gb-30d", Network: "glo", Code: "258", Description: "GLO corporate 1GB 30 days", Price: 27_000},
			{Slug: "glo-2gb-30d", Network: "glo", Code: "259", Description: "GLO corporate 2GB 30 days", Price: 54_000},
			{Slug: "airtel-1gb-30d", Network: "airtel", Code: "266", Description: "Airtel corporate 1GB 30 days", Price: 29_000},
			{Slug: "airtel-2gb-30d", Network: "airtel", Code: "267", Description: "Airtel corporate 2GB 30 days", Price: 58_000},
			{Slug: "9mobile-1gb-30d", Network: "9mobile", Code: "182", Description: "9mobile SME 1GB 30 days", Price: 25_000},
		}),
		Discos: map[string]string{
			"ikeja-electric":         "1",
			"eko-electric":           "2",
			"abuja-electric":         "3",
			"kano-electric":          "4",
			"enugu-electric":         "5",
			"port-harcourt-electric": "6",
			"ibadan-electric":        "7",
			"kaduna-electric":        "8",
			"jos-electric":           "9",
			"benin-electric":         "10",
			"yola-electric":          "11",
		},
		MeterTypes: map[string]string{
			"prepaid":  "1",
			"postpaid": "2",
		},
	}
}

func indexPlans(plans []DataPlan) map[string]DataPlan {
	out := make(map[string]DataPlan, len(plans))
	for _, p := range plans {
		out[p.Slug] = p
	}
	return out
}

// Network resolves a network name such as "MTN" to its provider code.
func (c Catalog) Network(name string) (string, error) {
	key := normalize(name)
	code, ok := c.Networks[key]
	if !ok {
		return "", &UnmappedError{Field: "network", Value: name}
	}
	return code, nil
}

// Plan resolves a data-plan slug.
func (c Catalog) Plan(slug string) (DataPlan, error) {
	plan, ok := c.DataPlans[normalize(slug)]
	if !ok {
		return DataPlan{}, &UnmappedError{Field: "plan", Value: slug}
	}
	return plan, nil
}

// Disco resolves an electricity distribution company name.
func (c Catalog) Disco(name string) (string, error) {
	code, ok := c.Discos[normalize(name)]
	if !ok {
		return "", &UnmappedError{Field: "disco", Value: name}
	}
	return code, nil
}

// MeterType resolves "prepaid" or "postpaid".
func (c Catalog) MeterType(name string) (string, error) {
	code, ok := c.MeterTypes[normalize(name)]
	if !ok {
		return "", &UnmappedError{Field: "meter_type", Value: name}
	}
	return code, nil
}

// Listing is the public view of the catalog.
type Listing struct {
	Networks   []string   `json:"networks"`
	DataPlans  []DataPlan `json:"data_plans"`
	Discos     []string   `json:"discos"`
	MeterTypes []string   `json:"meter_types"`
}

// List returns the identifiers callers may use, sorted for stable output.
func (c Catalog) List() Listing {
	l := Listing{
		Networks:   sortedKeys(c.Networks),
		Discos:     sortedKeys(c.Discos),
		MeterTypes: sortedKeys(c.MeterTypes),
	}
	for _, p := range c.DataPlans {
		l.DataPlans = append(l.DataPlans, p)
	}
	sort.Slice(l.DataPlans, func(i, j int) bool { return l.DataPlans[i].Slug < l.DataPlans[j].Slug })
	return l
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
