/*
Package session serializes access to saved conversations.

A Manager wraps a ports.StateStore with a reference-counted mutex per session
and, optionally, a ports.SessionLocker so that replicas sharing a Redis store
never interleave turns of the same conversation.
*/
package session
