// Package httpclient is the HTTP request issuer behind the load driver.
//
// [Issuer] implements driver.Issuer on top of a pooled *http.Client from
// [NewClient]:
//
//	issuer := httpclient.NewIssuer(httpclient.NewClient(0),
//		httpclient.WithTracer(provider.Tracer(), provider.ShouldPropagate()))
//	d := driver.New(issuer)
//
// Each exchange reports two timings. Network time ends when response
// headers arrive. Total time also covers reading the body (capped at 1 MiB)
// and decoding it as JSON. Bodies that are not JSON are replaced by
// [NonJSONBody] and the exchange still counts by status code.
//
// Request payloads come from a [BodySource], either inline or from a file,
// and header maps are checked with [NormalizeHeaders] before a run starts.
package httpclient
