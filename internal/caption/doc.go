// Package caption renders transcriptions as fixed-width caption lines and
// delivers them to the terminal and the append-only transcript file.
package caption
