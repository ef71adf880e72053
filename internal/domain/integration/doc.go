// Package integration contains the port used to talk to print-on-demand
// (POD) fulfillment partners.
//
// Key concepts:
//   - PODPartner: capability interface every partner adapter implements
//     (list products, submit an order, check an order's status)
//   - FulfillmentRequest: the partner-neutral shape of an order to forward
//   - PartnerRegistry: selects the configured partner adapter
//
// Adapters live in the infrastructure layer (internal/infrastructure/pod).
package integration
