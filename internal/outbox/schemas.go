package outbox

const activityLoggedSchema = `{
  "type": "object",
  "title": "ActivityLogged",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "category": {"type": "string", "enum": ["transport", "energy", "food", "waste", "products"]},
    "type": {"type": "string"},
    "quantity": {"type": "string"},
    "unit": {"type": "string"},
    "carbon_emission": {"type": "string"},
    "activity_date": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["activity_id", "user_id", "category", "quantity", "carbon_emission", "activity_date", "version"],
  "additionalProperties": false
}`

const offsetPurchasedSchema = `{
  "type": "object",
  "title": "OffsetPurchased",
  "properties": {
    "offset_id": {"type": "string"},
    "user_id": {"type": "string"},
    "offset_amount": {"type": "string"},
    "project": {"type": "string"},
    "cost": {"type": "string"},
    "currency": {"type": "string"},
    "purchase_date": {"type": "string", "format": "date-time"},
    "version": {"type": "string"}
  },
  "required": ["offset_id", "user_id", "offset_amount", "project", "currency", "purchase_date", "version"],
  "additionalProperties": false
}`
