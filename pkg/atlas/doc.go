/*
Package atlas creates and retrieves network measurements on the RIPE Atlas
probe network through its v2 REST API.

The lifecycle has three phases: a request built from selection criteria is
submitted once, the package then polls until the remote system has
allocated probes, and finally polls until enough probes have reported
their results (or the measurement stopped on its own).

Key Components:

  - Config: selection criteria and measurement parameters; BuildRequest
    turns it into the wire payload
  - Client: JSON HTTP transport for the API endpoints
  - Measurement: one remote measurement, created by Create or mapped onto
    an existing ID by Attach
  - Results: the per-probe records, fetched blocking or non-blocking

Usage Example:

	cfg := atlas.Config{
		Type:    "ping",
		Target:  "www.example.org",
		Country: "FR",
		Port:    80,
		OneOff:  true,
	}
	req, err := cfg.BuildRequest(logger)
	if err != nil {
		log.Fatal(err)
	}

	client, err := atlas.NewClient(atlas.ClientOptions{})
	if err != nil {
		log.Fatal(err)
	}

	m, err := atlas.Create(ctx, client, req, atlas.Options{
		Notify: func(d time.Duration) { fmt.Printf("sleeping %v...\n", d) },
	})
	if err != nil {
		log.Fatal(err)
	}

	results, err := m.Results(ctx, atlas.ResultOptions{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d probes reported\n", len(results))

Error Handling:

Every failure surfaces as a typed error: ConfigError before any network
call, SubmissionError for a rejected creation, AllocationError when
allocation polling fails or runs out of attempts, AccessError (wrapping
ErrNotFound where relevant) for attach-mode fetches, ResultError for
result collection, and InternalError whenever the remote status falls
outside the known vocabulary. There is no automatic retry across stages;
the bounded polling loops are part of the waiting protocol, not error
recovery.

Concurrency:

A Measurement belongs to one goroutine; all waiting is blocking sleeps
between sequential polls. Run one Measurement per goroutine to drive
several lifecycles concurrently. Cancellation goes through the context
passed to every blocking call.
*/
package atlas
