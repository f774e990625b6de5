// Package message implements outbound message composition and sending.
//
// A message is created together with its objects: one recipient row per
// To/Cc/Bcc address, the HTML body in blob storage, and links to previously
// uploaded attachments. Sending renders the stored message to MIME with the
// message id as correlation id and records the provider's message id.
//
// Repository implementations live in repository/postgres/.
package message
