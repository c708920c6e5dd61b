// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column aliases, most specific first.
var (
	IDColumns          = []string{"Código do Item", "Codigo do Item", "Código", "Codigo", "ID"}
	DescriptionColumns = []string{"Descrição do Item", "Descricao do Item", "Descrição", "Descricao", "Description"}
)

// foldName lowercases s, strips accents and collapses inner whitespace.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// findColumn returns the index of the first header matching any alias, in
// alias order, or -1.
func findColumn(header []string, aliases []string) int {
	folded := make([]string, len(header))
	for i, h := range header {
		folded[i] = foldName(h)
	}
	for _, alias := range aliases {
		want := foldName(alias)
		for i, h := range folded {
			if h == want {
				return i
			}
		}
	}
	return -1
}
