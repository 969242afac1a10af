// Package offcache keeps an application's assets available offline. A
// Controller sits between a page (or any Go HTTP client) and the network and
// answers requests cache-first from one versioned cache generation.
//
// Components:
//   - Controller: lifecycle (install, activate), fetch interception and
//     deferred sync, driven through an explicit dispatch table.
//   - cachestore.CacheStore: generation name -> request identity -> stored
//     response. The default store keeps bytes in a provider.Provider and the
//     generation index in a genstore.GenStore.
//   - Fetcher: the network. HTTPFetcher is the net/http default.
//
// Lifecycle:
//
//	install   fetch every manifest entry, store all of them or none
//	activate  delete every generation except the current one, claim pages
//	fetch     cache hit => cached copy; miss => network, store 200 basic copies;
//	          network failure on a navigation => cached fallback document
//
// Keys:
//
//	entry:<ns>:<generation>:<hash(identity)> - stored responses
//	identity = "<METHOD> <absolute URL without fragment>"
//
// Usage:
//
//	c, _ := offcache.New(offcache.Options{
//	    Generation: "evenup-v1.0.0",
//	    Origin:     "https://app.example",
//	    Manifest:   offcache.Manifest{"/index.html", "/css/styles.css"},
//	    Fallback:   "/index.html",
//	})
//	_ = c.Register(ctx)
//	client := &http.Client{Transport: offcache.NewTransport(c)}
package offcache
