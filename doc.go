// Package minify calls a native minification engine through its C ABI.
//
// The engine is a shared library exporting
//
//	char* minifyConfig(char** keys, char** values, long long count);
//	char* minifyString(char* mediaType, char* input, long long inputLength,
//	                   char* output, long long* outputLength);
//	char* minifyFile(char* mediaType, char* inputPath, char* outputPath);
//	void  minifyFree(char* ptr);
//
// lib/ in this module builds one with go build -buildmode=c-shared. Each
// call returns NULL on success or a malloc'd error message, which this
// package decodes into a typed error and hands back to minifyFree.
//
// # Process-wide configuration
//
// The engine keeps a single configuration for the whole process. It is
// created with defaults when the library is loaded, replaced by every
// Configure call, and discarded when the process exits. It is not scoped
// to a call, a goroutine, or a [Library] value: two Library values opened
// on the same path share one engine and one configuration.
//
// # Concurrency
//
// Every call is a single blocking foreign call with no cancellation. This
// package takes no locks around native calls. Whether Configure racing
// with Minify on other goroutines is safe is up to the engine; the engine
// in lib/ swaps its configuration atomically, but callers that need a
// particular configuration for a particular call must serialize Configure
// against their own use. For isolated configurations or parallel
// throughput, run separate processes, each loading its own engine; the
// pool package does this.
package minify
