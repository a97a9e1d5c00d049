package driver

const (
	SaveEntityNodeQuery = `
		MERGE (n:Entity {id: $id})
		SET n.name = $name,
			n.type = $type,
			n.aliases = $aliases,
			n.attributes = $attributes,
			n.last_updated = $last_updated
		RETURN n.id AS id
	`

	SaveEventNodeQuery = `
		MERGE (e:Event {id: $id})
		SET e.name = $name,
			e.type = $type,
			e.description = $description,
			e.location = $location,
			e.purpose = $purpose,
			e.result = $result,
			e.start_time = $start_time,
			e.last_updated = $last_updated,
			e.embedding = $embedding,
			e.cluster_id = $cluster_id
		RETURN e.id AS id
	`

	SaveRelationQuery = `
		MATCH (e:Event {id: $event_id})
		MATCH (n:Entity {id: $entity_id})
		MERGE (e)-[r:RELATES {role: $role}]->(n)
		SET r.id = $id,
			r.created_at = $created_at
		RETURN r.id AS id
	`

	SaveClusterNodeQuery = `
		MERGE (c:Cluster {id: $id})
		SET c.name = $name,
			c.description = $description,
			c.member_count = $member_count,
			c.earliest_event_time = $earliest_event_time,
			c.latest_event_time = $latest_event_time,
			c.centroid = $centroid
		RETURN c.id AS id
	`

	GetNodeByIDQuery = `
		MATCH (n:Entity {id: $id})
		RETURN n.id AS id, n.name AS name, n.type AS type, n.aliases AS aliases,
			n.attributes AS attributes, n.last_updated AS last_updated
	`

	GetNodesQuery = `
		MATCH (n:Entity)
		RETURN n.id AS id, n.name AS name, n.type AS type, n.aliases AS aliases,
			n.attributes AS attributes, n.last_updated AS last_updated
	`

	GetEventByIDQuery = `
		MATCH (e:Event {id: $id})
		RETURN e.id AS id, e.name AS name, e.type AS type, e.description AS description,
			e.location AS location, e.purpose AS purpose, e.result AS result,
			e.start_time AS start_time, e.last_updated AS last_updated,
			e.embedding AS embedding, e.cluster_id AS cluster_id
	`

	GetEventsQuery = `
		MATCH (e:Event)
		RETURN e.id AS id, e.name AS name, e.type AS type, e.description AS description,
			e.location AS location, e.purpose AS purpose, e.result AS result,
			e.start_time AS start_time, e.last_updated AS last_updated,
			e.embedding AS embedding, e.cluster_id AS cluster_id
	`

	GetRelationsForEventQuery = `
		MATCH (e:Event {id: $event_id})-[r:RELATES]->(n:Entity)
		RETURN r.id AS id, e.id AS event_id, n.id AS entity_id, r.role AS role, r.created_at AS created_at
	`

	GetRelationsForEntityQuery = `
		MATCH (e:Event)-[r:RELATES]->(n:Entity {id: $entity_id})
		RETURN r.id AS id, e.id AS event_id, n.id AS entity_id, r.role AS role, r.created_at AS created_at
	`

	GetAllRelationsQuery = `
		MATCH (e:Event)-[r:RELATES]->(n:Entity)
		RETURN r.id AS id, e.id AS event_id, n.id AS entity_id, r.role AS role, r.created_at AS created_at
	`

	GetClustersQuery = `
		MATCH (c:Cluster)
		RETURN c.id AS id, c.name AS name, c.description AS description,
			c.member_count AS member_count, c.earliest_event_time AS earliest_event_time,
			c.latest_event_time AS latest_event_time, c.centroid AS centroid
	`

	SetEventEmbeddingQuery = `
		MATCH (e:Event {id: $id})
		SET e.embedding = $embedding, e.last_updated = $last_updated
		RETURN e.id AS id
	`

	SetEventClusterQuery = `
		MATCH (e:Event {id: $id})
		SET e.cluster_id = $cluster_id
		RETURN e.id AS id
	`

	DeleteNodeQuery = `
		MATCH (n:Entity {id: $id})
		WITH n, n.id AS id
		DETACH DELETE n
		RETURN id
	`

	DeleteClusterQuery = `
		MATCH (c:Cluster {id: $id})
		DETACH DELETE c
		RETURN count(*) AS removed
	`

	DeleteAllClustersQuery = `
		MATCH (c:Cluster)
		WITH c, count(c) AS removed
		DETACH DELETE c
		RETURN count(*) AS removed
	`

	ClearClusterAssignmentsQuery = `
		MATCH (e:Event)
		WHERE e.cluster_id IS NOT NULL AND e.cluster_id <> ""
		SET e.cluster_id = ""
		RETURN count(e) AS cleared
	`

	DeleteOrphanedNodesQuery = `
		MATCH (n:Entity)
		WHERE NOT ( ()-[:RELATES]->(n) )
		DETACH DELETE n
		RETURN count(*) AS removed
	`
)
