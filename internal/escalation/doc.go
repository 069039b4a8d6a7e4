// Package escalation moves conversations from the bot to a human agent,
// either automatically (customer asked, or the bot suggested it) or via
// an explicit staff takeover.
package escalation
