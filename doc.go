/*
Package tutorgraph routes a tutoring conversation through a fixed graph of supervisors and agents.

A top-level supervisor picks a subject (Math or English). The subject supervisor then
hands the turn to a lesson agent or an assessment agent, sends it back to the top level,
or finishes. After a leaf agent replies, control returns to the subject supervisor that
is active, until some supervisor chooses FINISH.

Supervisors delegate the choice to a ports.Decider, which must answer with one of a
closed set of routes. Leaf agents delegate their text to a ports.Responder. The engine
never talks to a model itself; pkg/adapters/anthropic and pkg/adapters/rules provide
delegates.

# Usage

	delegate := rules.New()
	eng, err := tutorgraph.New(delegate, delegate)
	if err != nil {
		log.Fatal(err)
	}

	state, _ := domain.NewState(domain.RoleStudent, domain.HumanMessage("Quiz me on fractions"))
	res, err := eng.Run(ctx, state)
	if err != nil {
		log.Fatal(err)
	}

	// Continue the same conversation.
	res, err = eng.Reply(ctx, res.State, "Now teach me about nouns")
*/
package tutorgraph
