// Package adapter holds provider-neutral helpers shared by requesty provider adapters:
// text extraction from content parts, typed extraction of well-known model config keys
// and the adapter sentinel errors. Implementations live in provider-specific subpackages.
package adapter
