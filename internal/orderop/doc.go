// Package orderop submits order mutations over the session and correlates
// them with the server's acknowledgements.
//
// An acknowledgement matches when its type is "<opcode>-req" and it carries
// the op's client id (new orders) or order id (cancel, update). Group
// cancels resolve on the first acknowledgement of their type.
package orderop
