// Package instagram talks to the platform's public web endpoints.
//
// It provides:
//   - a Client with browser-like headers, user-agent rotation and typed errors
//   - record types for the profile and reel feed responses
//   - NormalizeReelItems, which turns raw media renditions into ContentItems
//
// Example:
//
//	client := instagram.NewClient(cfg.Platform, log)
//	user, err := client.FetchProfile(ctx, "nasa")
//	if err != nil {
//	    switch errors.TypeOf(err) {
//	    case errors.ErrorTypeNotFound:
//	        // no such account
//	    }
//	}
//	items, err := client.FetchReel(ctx, user.ID)
package instagram
