/*
Package ports defines the driven ports (interfaces) for the tutorgraph router.

These interfaces decouple the routing core from the language model, the web
search backend and the cache that sits in front of it. The core only ever talks
to these interfaces, so every delegate can be replaced by a scripted double in tests.

# Key Interfaces

  - Decider: produces the structured routing decision of a supervisor.
  - Responder: produces the content of a leaf agent.
  - Tool: a capability offered to a Responder (e.g. web search).
  - Searcher: a web search backend (e.g. Tavily).
  - SearchCache: memoizes search results (e.g. Redis or an in-process LRU).
  - Trimmer: bounds the history handed to a supervisor.
  - Router: the driving port consumed by the HTTP and MCP adapters.
  - StateStore: persists resumable conversations (file or Redis).
  - SessionLocker: serializes turns on a shared session (Redis).
*/
package ports
