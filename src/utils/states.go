package utils

import (
	"strconv"
	"strings"
)

// gstStateCodes maps GST numeric state codes to their alpha codes.
var gstStateCodes = map[string]string{
	"01": "JK", "02": "HP", "03": "PB", "04": "CH", "05": "UK",
	"06": "HR", "07": "DL", "08": "RJ", "09": "UP", "10": "BR",
	"11": "SK", "12": "AR", "13": "NL", "14": "MN", "15": "MZ",
	"16": "TR", "17": "ML", "18": "AS", "19": "WB", "20": "JH",
	"21": "OD", "22": "CG", "23": "MP", "24": "GJ", "25": "DD",
	"26": "DN", "27": "MH", "28": "AP", "29": "KA", "30": "GA",
	"31": "LD", "32": "KL", "33": "TN", "34": "PY", "35": "AN",
	"36": "TS", "37": "AP", "38": "LA", "97": "OT",
}

// Legacy and alternate alpha codes.
var stateAliases = map[string]string{
	"OR": "OD",
	"CT": "CG",
	"TG": "TS",
	"UT": "UK",
}

var stateNames = map[string]string{
	"JAMMU AND KASHMIR":      "JK",
	"HIMACHAL PRADESH":       "HP",
	"PUNJAB":                 "PB",
	"CHANDIGARH":             "CH",
	"UTTARAKHAND":            "UK",
	"HARYANA":                "HR",
	"DELHI":                  "DL",
	"RAJASTHAN":              "RJ",
	"UTTAR PRADESH":          "UP",
	"BIHAR":                  "BR",
	"SIKKIM":                 "SK",
	"ARUNACHAL PRADESH":      "AR",
	"NAGALAND":               "NL",
	"MANIPUR":                "MN",
	"MIZORAM":                "MZ",
	"TRIPURA":                "TR",
	"MEGHALAYA":              "ML",
	"ASSAM":                  "AS",
	"WEST BENGAL":            "WB",
	"JHARKHAND":              "JH",
	"ODISHA":                 "OD",
	"CHHATTISGARH":           "CG",
	"MADHYA PRADESH":         "MP",
	"GUJARAT":                "GJ",
	"DAMAN AND DIU":          "DD",
	"DADRA AND NAGAR HAVELI": "DN",
	"MAHARASHTRA":            "MH",
	"ANDHRA PRADESH":         "AP",
	"KARNATAKA":              "KA",
	"GOA":                    "GA",
	"LAKSHADWEEP":            "LD",
	"KERALA":                 "KL",
	"TAMIL NADU":             "TN",
	"PUDUCHERRY":             "PY",
	"ANDAMAN AND NICOBAR":    "AN",
	"TELANGANA":              "TS",
	"LADAKH":                 "LA",
	"OTHER TERRITORY":        "OT",
}

var knownAlphaCodes = func() map[string]bool {
	m := make(map[string]bool, len(gstStateCodes))
	for _, alpha := range gstStateCodes {
		m[alpha] = true
	}
	return m
}()

// NormalizeStateCode converts a GST numeric code ("27"), an alpha code ("mh") or a
// state name ("Maharashtra") into its canonical alpha code ("MH").
// Unknown values are returned trimmed and upper-cased so they still compare consistently.
func NormalizeStateCode(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}

	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < 100 {
		key := s
		if len(key) == 1 {
			key = "0" + key
		}
		if alpha, ok := gstStateCodes[key]; ok {
			return alpha
		}
		return key
	}

	if alias, ok := stateAliases[s]; ok {
		return alias
	}
	if knownAlphaCodes[s] {
		return s
	}
	if alpha, ok := stateNames[strings.Join(strings.Fields(strings.ReplaceAll(s, "&", "AND")), " ")]; ok {
		return alpha
	}
	return s
}

// IsKnownState reports whether raw resolves to a GST state or territory.
func IsKnownState(raw string) bool {
	return knownAlphaCodes[NormalizeStateCode(raw)]
}

// StateCodeFromGSTIN returns the alpha state code encoded in the first two digits of a GSTIN.
func StateCodeFromGSTIN(gstin string) string {
	if len(gstin) < 2 {
		return ""
	}
	if alpha, ok := gstStateCodes[gstin[:2]]; ok {
		return alpha
	}
	return ""
}
