// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package console

import "strings"

var zshReplacer = strings.NewReplacer(":", `\:`)

// EscapeZsh escapes the characters zsh completion treats as separators in
// "value:description" entries.
func EscapeZsh(s string) string {
	return zshReplacer.Replace(s)
}
