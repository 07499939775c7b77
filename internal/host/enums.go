package host

// Direction mirrors the host's block face enumeration.
type Direction string

const (
	DirectionDown  Direction = "Down"
	DirectionEast  Direction = "East"
	DirectionNorth Direction = "North"
	DirectionSouth Direction = "South"
	DirectionUp    Direction = "Up"
	DirectionWest  Direction = "West"
)

// StructureRotation mirrors the host's structure placement rotations.
type StructureRotation string

const (
	StructureRotationNone StructureRotation = "None"
	StructureRotation90   StructureRotation = "Rotate90"
	StructureRotation180  StructureRotation = "Rotate180"
	StructureRotation270  StructureRotation = "Rotate270"
)

// ScriptEventSource identifies what sent a script event.
type ScriptEventSource string

const (
	ScriptEventSourceBlock       ScriptEventSource = "Block"
	ScriptEventSourceEntity      ScriptEventSource = "Entity"
	ScriptEventSourceNPCDialogue ScriptEventSource = "NPCDialogue"
	ScriptEventSourceServer      ScriptEventSource = "Server"
)
