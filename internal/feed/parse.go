// SPDX-License-Identifier: MIT

package feed

import (
	"bytes"
	"fmt"
)

// Parse sniffs the document format and normalizes it into the neutral model.
// Providers hand over whatever the upstream serves: YouTube channels are
// Atom, everything else is RSS.
func Parse(data []byte) (Channel, error) {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.Contains(head, []byte("<rss")):
		return parseRSS(data)
	case bytes.Contains(head, []byte("<feed")):
		return parseAtom(data)
	}
	return Channel{}, fmt.Errorf("unrecognized feed format")
}
