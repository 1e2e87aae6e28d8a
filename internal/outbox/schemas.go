package outbox

const rosterChangedSchema = `{
  "type": "object",
  "title": "RosterChanged",
  "properties": {
    "event_id": {"type": "string"},
    "activity": {"type": "string"},
    "email": {"type": "string"},
    "change": {"type": "string", "enum": ["enrolled", "withdrawn"]},
    "participants": {"type": "integer", "minimum": 0},
    "capacity": {"type": "integer", "minimum": 1},
    "revision": {"type": "integer", "minimum": 1},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["event_id", "activity", "email", "change", "participants", "capacity", "revision", "occurred_at"],
  "additionalProperties": false
}`
