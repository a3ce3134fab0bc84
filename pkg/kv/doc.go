// Package kv provides the platform storage substrate for the yoga practice
// state layer: string-valued slots addressed by key, plus a change stream
// that tells one execution context about writes made by another.
//
// # Overview
//
// The layer above (cells, collections, override maps) assumes the semantics
// of browser local storage: synchronous get/set/remove by string key, and a
// "storage changed externally" signal that fires in every other context
// sharing the storage but never in the context that performed the write.
// Backend captures that contract so it can be satisfied by Redis (Client) or
// by a directory of files (internal/fsstore).
//
// # Profiles
//
// All Redis keys and Pub/Sub channels are namespaced by profile name so that
// several users (or test runs) can share one Redis server without
// interference.
//
// # Redis Schema
//
// Slots: yoga:{profile}:{key}
//
// Change events: yoga:{profile}:storage_events
//
// Change events are JSON-encoded Change values. Each Client stamps its own
// origin UUID on the events it publishes and drops events carrying that
// origin when subscribed, which gives the "never in the writing tab" rule.
//
// # Usage Example
//
//	client, err := kv.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Set(ctx, "customSessions", "[]"); err != nil {
//		log.Fatal(err)
//	}
//
//	sub, err := client.Subscribe(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sub.Close()
//
//	for change := range sub.Events() {
//		fmt.Println(change.Key, change.Removed())
//	}
package kv
