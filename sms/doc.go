// Package sms defines the code-delivery channel used for SMS second factors
// and a local implementation that generates codes in process, stores only
// their hashes and throttles sends per phone number.
package sms
