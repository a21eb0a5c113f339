// Package clientip resolves the originating client IP of an *http.Request
// behind one or more reverse proxies.
//
// Resolution walks the proxy headers in trust order and returns the first
// valid address:
//
//  1. CF-Connecting-IP (Cloudflare)
//  2. DO-Connecting-IP (DigitalOcean App Platform)
//  3. X-Forwarded-For (first entry of the comma-separated list)
//  4. X-Real-IP (set by reverse proxies such as Nginx)
//  5. RemoteAddr (TCP peer address fallback)
//
// GetIP extracts the address directly. Middleware resolves it once per
// request and stores it in the context, where GetIPFromContext serves
// downstream consumers such as webhook source checks and rate-limit keys.
//
// # Usage
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
//		log.Printf("client ip: %s", clientip.GetIPFromContext(r.Context()))
//	})
//	http.ListenAndServe(":8080", clientip.Middleware(mux))
//
// GetIP never returns an error. If no valid address is found an empty
// string is returned so callers can decide how to proceed.
package clientip
