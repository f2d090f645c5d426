// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when constructing protocol events and driving the run
// controller without a network. They are not intended for production usage.
package testutil
