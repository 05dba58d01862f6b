// Package ports defines the contracts between the coordinator core and the outside
// world: the merchant REST backend, the push channel, the routing service, the
// state sink that receives user-visible notifications and the dispatch log store.
package ports
