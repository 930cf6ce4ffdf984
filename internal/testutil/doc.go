// Package testutil contains helper builders and recorders used across tests
// to reduce boilerplate when constructing agents and data sources and when
// capturing run callbacks. They are not intended for production usage.
package testutil
