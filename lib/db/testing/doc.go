// Package testing provides a conformance suite and benchmarks for implementations
// of the db.Backend interface.
//
// Example usage:
//
//	factory := func() db.Backend {
//		return NewMyBackend()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunBackendTests(t, "MyBackend", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunBackendBenchmarks(b, "MyBackend", factory)
//
// Backends exposing RegisterNamedUpdate(name string, update db.NamedUpdate) are
// also tested for named updates, all others skip that part.
package testing
