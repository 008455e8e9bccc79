package seb

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ignoredKeys never take part in the config key. The browser rewrites them.
var ignoredKeys = map[string]struct{}{
	"originatorVersion": {},
}

// Canonical serializes d into the stable form the config key is computed
// over: compact JSON, keys sorted case-insensitively at every level, booleans
// as 0/1 and arrays kept in stored order.
func Canonical(d Dict) string {
	var b strings.Builder
	writeValue(&b, map[string]interface{}(d), true)
	return b.String()
}

func writeValue(b *strings.Builder, v interface{}, top bool) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	case string:
		writeString(b, t)
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'f', -1, 64))
	case []byte:
		writeString(b, base64.StdEncoding.EncodeToString(t))
	case time.Time:
		writeString(b, t.UTC().Format(time.RFC3339))
	case []interface{}:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, e, false)
		}
		b.WriteByte(']')
	case Dict:
		writeDict(b, t, top)
	case map[string]interface{}:
		writeDict(b, t, top)
	default:
		writeString(b, fmt.Sprint(t))
	}
}

func writeDict(b *strings.Builder, m map[string]interface{}, top bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if _, skip := ignoredKeys[k]; skip && top {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(b, k)
		b.WriteByte(':')
		writeValue(b, m[k], false)
	}
	b.WriteByte('}')
}

func writeString(b *strings.Builder, s string) {
	enc, _ := json.Marshal(s)
	b.Write(enc)
}

// ConfigKey hashes the canonical form of a configuration. It does not
// depend on the page being requested.
func ConfigKey(d Dict) string {
	return sha256Hex(Canonical(d))
}

// DeriveKey is the value the browser sends in X-SafeExamBrowser-ConfigKeyHash
// for a request to url: the hash of url followed by the config key.
func DeriveKey(configKey, url string) string {
	return sha256Hex(url + configKey)
}

// BrowserExamKeyHash is the value sent in X-SafeExamBrowser-RequestHash for
// a request to url by a browser with the given browser exam key.
func BrowserExamKeyHash(browserExamKey, url string) string {
	return sha256Hex(url + browserExamKey)
}

// HashQuitPassword returns the hashedQuitPassword value for a plain password.
func HashQuitPassword(password string) string {
	return sha256Hex(password)
}

// ContentHash identifies template content across deployments.
func ContentHash(content string) string {
	return sha256Hex(strings.TrimSpace(content))
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// URLVariants returns the URLs a header hash may have been computed over:
// the full URL and, when it has one, the URL without its query string.
// Fragments are never sent by the browser and are always dropped.
func URLVariants(url string) []string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		url = url[:i]
	}
	variants := []string{url}
	if i := strings.IndexByte(url, '?'); i >= 0 {
		variants = append(variants, url[:i])
	}
	return variants
}

// MatchesAny reports whether got equals want computed for any URL variant.
// Comparison is case-insensitive on the hex digits and constant-time.
func MatchesAny(got string, url string, hash func(url string) string) bool {
	if got == "" {
		return false
	}
	got = strings.ToLower(strings.TrimSpace(got))
	for _, u := range URLVariants(url) {
		if subtle.ConstantTimeCompare([]byte(hash(u)), []byte(got)) == 1 {
			return true
		}
	}
	return false
}
