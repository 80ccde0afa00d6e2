/*
Package domain contains the core domain models of the tutorgraph router.

It defines the fixed routing graph (node identifiers and route choices), the
conversation State threaded through every step, and the typed errors raised when
a decision breaks the routing contract. This package is kept pure and free of
external dependencies like I/O or model clients, following Hexagonal Architecture
principles.

# Key Entities

  - NodeID: a node of the routing graph (supervisor, leaf agent, or Halt).
  - Route: a value a supervisor may write into State.Next.
  - Message: one conversation entry, tagged with its originator.
  - State: the snapshot passed by value between steps (Messages, Next, CurrentSupervisor, Role).
  - Edge: a declared transition of the static topology, used for introspection.
*/
package domain
