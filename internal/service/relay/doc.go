// Package relay runs tripwire-relay, the remote control channel.
//
// Operators post slash commands through tripwire-ctl; armed tripwire
// processes subscribe with their bot token, receive the commands and reply
// to the posting chat. Posting is rate limited per token.
package relay
