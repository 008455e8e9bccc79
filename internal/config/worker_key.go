package config

type WorkerKeyStruct struct {
	PersistAccessEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAccessEventsQueue: "persist_access_events_queue",
}
