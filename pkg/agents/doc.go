/*
Package agents implements the nodes of the tutoring graph.

Supervisors ask a ports.Decider to call the "route" function and record the
outcome in State.Next; leaf agents ask a ports.Responder for content and append
it to the conversation. Nodes never decide where control goes after a leaf
agent: that is the engine's continuation rule.
*/
package agents
